package sqlutil

import "strings"

// MaxIdentifierLength is the PostgreSQL limit (NAMEDATALEN - 1).
const MaxIdentifierLength = 63

// Abbreviation maps a long name fragment to its short form.
type Abbreviation struct {
	Original string
	Short    string
}

// TableNameAbbreviations shorten resource type names inside derived index names.
var TableNameAbbreviations = []Abbreviation{
	{Original: "MedicinalProductAuthorization", Short: "MPA"},
	{Original: "MedicinalProductContraindication", Short: "MPC"},
	{Original: "MedicinalProductPharmaceutical", Short: "MPP"},
	{Original: "BiologicallyDerivedProduct", Short: "BDP"},
	{Original: "SubstanceSpecification", Short: "SubSpec"},
}

// ColumnNameAbbreviations shorten column names inside derived index names.
var ColumnNameAbbreviations = []Abbreviation{
	{Original: "participatingOrganization", Short: "partOrg"},
	{Original: "relatedMedicinalProduct", Short: "relMedProd"},
	{Original: "Identifier", Short: "Idnt"},
}

const (
	referencesSuffix = "_References"
	refsSuffix       = "_Refs"
)

// ApplyAbbreviations shortens name with the given table, including the
// _References -> _Refs suffix rule. Each fragment is replaced at its first
// occurrence only.
func ApplyAbbreviations(name string, abbreviations []Abbreviation) string {
	result := name
	if strings.HasSuffix(result, referencesSuffix) {
		result = strings.TrimSuffix(result, referencesSuffix) + refsSuffix
	}
	for _, a := range abbreviations {
		result = strings.Replace(result, a.Original, a.Short, 1)
	}
	return result
}

// ExpandAbbreviations reverses ApplyAbbreviations.
func ExpandAbbreviations(name string, abbreviations []Abbreviation) string {
	result := name
	if strings.HasSuffix(result, refsSuffix) {
		result = strings.TrimSuffix(result, refsSuffix) + referencesSuffix
	}
	for _, a := range abbreviations {
		result = strings.ReplaceAll(result, a.Short, a.Original)
	}
	return result
}

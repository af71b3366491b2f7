package entity

import "strings"

// primaryTypes are the entity descriptors that identify the subjects
// this tool was built to track: companies, banks, and other commercial
// organizations. A candidate with one of these types always beats a
// backup-type candidate, regardless of result order.
var primaryTypes = newTypeSet(
	"automaker company",
	"airline",
	"airline company",
	"all other miscellaneous manufacturing business",
	"bank",
	"broadcasting company",
	"business",
	"business operation",
	"business process outsourcing company",
	"commercial banking company",
	"commercial bank business",
	"commercial company",
	"commercial organization",
	"computer-aided engineering company",
	"company",
	"conglomerate company",
	"construction company",
	"consumer electronics company",
	"corporation",
	"crude petroleum and natural gas extraction business",
	"defense contractor business",
	"energy company",
	"electronics company",
	"financial services company",
	"finance company",
	"game developer",
	"health care company",
	"healthcare company",
	"investment",
	"investment company",
	"investment banking company",
	"internet company",
	"it security company",
	"logistics company",
	"management services consulting company",
	"management consulting services company",
	"mining company",
	"motion picture company",
	"mobile marketing company",
	"mobile network operator company",
	"motherboard company",
	"music industry company",
	"natural gas transmission company",
	"network security company",
	"online shopping company",
	"organization",
	"petroleum industry business",
	"petroleum refineries company",
	"private equity company",
	"pharmaceutical company",
	"pharmaceutical preparations business",
	"risk management company",
	"retail company",
	"real estate company",
	"restaurant",
	"service",
	"semiconductor manufacturing company",
	"software company",
	"software developer",
	"software engineering company",
	"specialty retailer company",
	"solar power company",
	"solar power business",
	"software development company",
	"software as a service company",
	"social network service website",
	"shoe manufacturing company",
	"telecommunications company",
	"video game developer",
	"website",
)

// backupTypes are accepted only when no primary-type candidate exists.
var backupTypes = newTypeSet(
	"organization leader",
	"organization founder",
	"brand",
	"topic",
	"software",
	"fashion designer",
	"trucking, except local business",
)

func newTypeSet(types ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(types))
	for _, t := range types {
		s[t] = struct{}{}
	}
	return s
}

// normalizeType folds an entity descriptor for whitelist comparison.
func normalizeType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// isPrimaryType reports whether the descriptor names a primary subject.
// Any descriptor mentioning "company" counts, matching the blanket rule
// the whitelist was built around.
func isPrimaryType(t string) bool {
	n := normalizeType(t)
	if _, ok := primaryTypes[n]; ok {
		return true
	}
	return strings.Contains(n, "company")
}

// isBackupType reports whether the descriptor is acceptable when no
// primary candidate exists.
func isBackupType(t string) bool {
	_, ok := backupTypes[normalizeType(t)]
	return ok
}

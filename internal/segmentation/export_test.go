package segmentation

// Fixtures shared with the external Postgres tests.
var (
	GenerateContacts = generateContacts
	RuleMatrix       = ruleMatrix
	TestOrgID        = testOrgID
)

package authz

import "strings"

// PolicyPrefix starts every policy name provisioned by this service.
const PolicyPrefix = "kylo"

// Repository types used as the policy name suffix.
const (
	RepositoryHive = "hive"
	RepositoryHdfs = "hdfs"
)

// PolicyName derives the policy name for a feed in the given repository:
// <prefix>_<category>_<feed>_<repositoryType>.
//
// Category and feed are not escaped, so pairs containing underscores can
// derive the same name ("a_b"+"c" and "a"+"b_c"). A policy ledger detects
// such collisions at reconcile time.
func PolicyName(category, feed, repositoryType string) string {
	return Join([]string{PolicyPrefix, category, feed, repositoryType}, "_")
}

// HivePolicyName is the Sentry role name for a feed's Hive tables.
func HivePolicyName(category, feed string) string {
	return PolicyName(category, feed, RepositoryHive)
}

// Join concatenates items with delim between them. An empty slice yields "".
func Join(items []string, delim string) string {
	return strings.Join(items, delim)
}

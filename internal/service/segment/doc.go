// Package segment manages saved segments and their evaluation.
//
// The service validates segment definitions before they are stored and
// evaluates saved segments through the segmentation engine. It depends on
// the Repository interface defined in this package; the Postgres
// implementation lives in repository/postgres.
package segment

// Package model defines the core data types shared by the rowgrid packages:
// row identities, rows, and the singleton table metadata record.
package model

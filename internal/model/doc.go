// Package model holds the records shared by storage, posting and the admin layer.
package model

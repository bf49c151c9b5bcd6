// Package models holds the GORM persistence models. Domain types never carry
// gorm tags; each model converts to and from its domain counterpart.
package models

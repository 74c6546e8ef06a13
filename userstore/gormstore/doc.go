// Package gormstore implements goToken.UserProvider over a SQL users table
// through GORM.
package gormstore

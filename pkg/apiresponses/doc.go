// Package apiresponses provides the JSON response helpers shared by the admin
// API controllers.
package apiresponses

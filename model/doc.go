// Package model defines the error taxonomy shared by the coordinator and the
// role manager, plus the JSON boundary rows printed by the CLI and served by
// HTTP endpoints.
//
// Callers branch on Kind and Stage rather than matching error strings.
package model

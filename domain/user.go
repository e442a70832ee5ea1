// Package domain contains core concepts of the chat relay.
// No runtime, network, or storage logic should be added here.
package domain

import "time"

// User is identified by its username. There is no separate numeric id:
// the name is the primary key, case-sensitive.
type User struct {
	Username string    `json:"username"`
	LastSeen time.Time `json:"lastSeen"`
}

package model

import "time"

// Prospect is an inbound interest record for a property.
type Prospect struct {
	ID         int64
	PropertyID int64
	ClientID   string
	Area       Area
	// OwnerBrokerID is the fixed owning broker of the referenced property, if any.
	OwnerBrokerID     string
	Message           string
	ContactPreference string
	CreatedAt         time.Time
}

// ProspectContext is the prospect plus the property and client details the
// notifier needs.
type ProspectContext struct {
	Prospect
	PropertyCode  string
	PropertyTitle string
	ClientName    string
	ClientEmail   string
	ClientPhone   string
}

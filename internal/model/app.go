package model

import "time"

// App is a namespace that owns a set of license keys.
type App struct {
	AppID     string    `json:"appId"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

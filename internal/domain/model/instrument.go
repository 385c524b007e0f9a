package model

import "time"

// Card is a limited-use payment instrument. A card may be bound to up to
// MaxUsage accounts before it drops out of the available pool.
type Card struct {
	ID             int64
	Number         string
	ExpMonth       string
	ExpYear        string
	CVV            string
	HolderName     string
	BillingAddress string
	Remark         string
	UsageCount     int
	MaxUsage       int
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Available reports whether the card may still be handed to a job.
func (c *Card) Available() bool {
	return c.Active && c.UsageCount < c.MaxUsage
}

// Proxy is a single-use egress endpoint assigned to one browser profile.
type Proxy struct {
	ID        int64
	Type      string // socks5 | http | https
	Host      string
	Port      string
	Username  string
	Password  string
	Remark    string
	Used      bool
	UsedBy    string // email of the job that consumed it
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Proxy) Available() bool { return !p.Used }

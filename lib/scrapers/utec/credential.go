package utec

// Credential carries a student's portal login for the duration of one
// operation. Credentials are never persisted or logged; callers should
// Wipe as soon as the scrape finishes.
type Credential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c *Credential) Wipe() {
	c.Username = ""
	c.Password = ""
}

// Package session holds who is logged in and which sector is active, and
// tells listeners when either changes.
package session

import (
	"fmt"
	"sync"

	"lubereport/internal/domain"
)

// RoleAdmin is the role allowed to use the admin pages.
const RoleAdmin = "admin"

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// State is a snapshot of the session.
type State struct {
	Token   string         `json:"-"`
	Profile domain.Profile `json:"profile"`
	Sector  domain.Sector  `json:"sector"`
}

// LoggedIn reports whether a token is held.
func (s State) LoggedIn() bool { return s.Token != "" }

// Listener is called synchronously after every change with the new state.
type Listener func(State)

// Context is the shared session; it is safe for concurrent use.
type Context struct {
	mu        sync.RWMutex
	state     State
	listeners map[int]Listener
	nextID    int
}

// New returns a context seeded with s.
func New(s State) *Context {
	return &Context{state: s, listeners: map[int]Listener{}}
}

// State returns the current snapshot.
func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Sector returns the active sector.
func (c *Context) Sector() domain.Sector {
	return c.State().Sector
}

// SetSector switches the active sector. Unknown sectors are rejected.
func (c *Context) SetSector(s domain.Sector) error {
	if !s.Valid() {
		return fmt.Errorf("unknown sector %q", s)
	}
	c.update(func(st *State) bool {
		if st.Sector == s {
			return false
		}
		st.Sector = s
		return true
	})
	return nil
}

// Login records a token and the profile behind it.
func (c *Context) Login(token string, profile domain.Profile) {
	c.update(func(st *State) bool {
		st.Token = token
		st.Profile = profile
		return true
	})
}

// Logout forgets the token and profile but keeps the sector.
func (c *Context) Logout() {
	c.update(func(st *State) bool {
		if st.Token == "" && st.Profile == (domain.Profile{}) {
			return false
		}
		st.Token = ""
		st.Profile = domain.Profile{}
		return true
	})
}

// Subscribe registers fn and returns a function that removes it.
func (c *Context) Subscribe(fn Listener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Context) update(apply func(*State) bool) {
	c.mu.Lock()
	if !apply(&c.state) {
		c.mu.Unlock()
		return
	}
	snapshot := c.state
	listeners := make([]Listener, 0, len(c.listeners))
	for i := 0; i < c.nextID; i++ {
		if fn, ok := c.listeners[i]; ok {
			listeners = append(listeners, fn)
		}
	}
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(snapshot)
	}
}

// RequireRole returns ForbiddenError unless the profile has role.
func RequireRole(p domain.Profile, role string) error {
	if p.Role != role {
		return ForbiddenError{Permission: "role:" + role}
	}
	return nil
}

// RequireSector returns ForbiddenError when a report of sector may not be
// changed from the active sector.
func RequireSector(active, sector domain.Sector, action string) error {
	if active == "" || active != sector {
		return ForbiddenError{Permission: fmt.Sprintf("report.%s in sector %s", action, sector)}
	}
	return nil
}

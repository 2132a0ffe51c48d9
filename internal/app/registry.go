package app

import (
	"slices"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type identity struct {
	conn    core.ConnID
	address domain.TransportAddress
}

// Registry maps online identities to their live connection and transport address.
// It is not safe for concurrent use; the Engine owns it.
type Registry struct {
	users  map[domain.UserID]*identity
	byConn map[core.ConnID]domain.UserID
	byAddr map[domain.TransportAddress]domain.UserID
}

func NewRegistry() *Registry {
	return &Registry{
		users:  make(map[domain.UserID]*identity),
		byConn: make(map[core.ConnID]domain.UserID),
		byAddr: make(map[domain.TransportAddress]domain.UserID),
	}
}

// Register binds id to conn. When id was bound to another connection that
// connection is returned as superseded and the stale transport address is dropped.
func (r *Registry) Register(id domain.UserID, conn core.ConnID) (core.ConnID, bool) {
	if u, ok := r.users[id]; ok {
		if u.conn == conn {
			return "", false
		}
		prev := u.conn
		delete(r.byConn, prev)
		r.dropAddress(id)
		u.conn = conn
		r.byConn[conn] = id
		log.Info().Str("module", "app.registry").Str("user", string(id)).Str("conn", string(conn)).Str("superseded", string(prev)).Msg("re-registered user")
		return prev, true
	}
	r.users[id] = &identity{conn: conn}
	r.byConn[conn] = id
	log.Info().Str("module", "app.registry").Str("user", string(id)).Str("conn", string(conn)).Msg("registered user")
	return "", false
}

// RegisterAddress binds a transport address to an online id. Unknown ids are ignored.
func (r *Registry) RegisterAddress(id domain.UserID, addr domain.TransportAddress) bool {
	u, ok := r.users[id]
	if !ok {
		return false
	}
	r.dropAddress(id)
	if owner, taken := r.byAddr[addr]; taken && owner != id {
		r.users[owner].address = ""
	}
	u.address = addr
	r.byAddr[addr] = id
	log.Info().Str("module", "app.registry").Str("user", string(id)).Str("address", string(addr)).Msg("registered address")
	return true
}

func (r *Registry) dropAddress(id domain.UserID) {
	u := r.users[id]
	if u.address == "" {
		return
	}
	if r.byAddr[u.address] == id {
		delete(r.byAddr, u.address)
	}
	u.address = ""
}

func (r *Registry) LookupConnection(id domain.UserID) (core.ConnID, bool) {
	u, ok := r.users[id]
	if !ok {
		return "", false
	}
	return u.conn, true
}

func (r *Registry) LookupAddress(id domain.UserID) (domain.TransportAddress, bool) {
	u, ok := r.users[id]
	if !ok || u.address == "" {
		return "", false
	}
	return u.address, true
}

// ResolveAddress finds the identity currently owning addr.
func (r *Registry) ResolveAddress(addr domain.TransportAddress) (domain.UserID, bool) {
	id, ok := r.byAddr[addr]
	return id, ok
}

// IdentityOf reports which id conn is bound to. Superseded connections are bound to none.
func (r *Registry) IdentityOf(conn core.ConnID) (domain.UserID, bool) {
	id, ok := r.byConn[conn]
	return id, ok
}

// User returns the public view of id; the address is empty when unknown.
func (r *Registry) User(id domain.UserID) domain.User {
	out := domain.User{ID: id}
	if u, ok := r.users[id]; ok {
		out.Address = u.address
	}
	return out
}

func (r *Registry) Unregister(id domain.UserID) {
	u, ok := r.users[id]
	if !ok {
		return
	}
	r.dropAddress(id)
	delete(r.byConn, u.conn)
	delete(r.users, id)
	log.Info().Str("module", "app.registry").Str("user", string(id)).Msg("unregistered user")
}

// Online lists every id with a live connection except the excluded ones, sorted.
func (r *Registry) Online(exclude ...domain.UserID) []domain.UserID {
	out := make([]domain.UserID, 0, len(r.users))
	for id := range r.users {
		out = append(out, id)
	}
	slices.Sort(out)
	return lo.Without(out, exclude...)
}

func (r *Registry) Len() int { return len(r.users) }

func (r *Registry) AddressCount() int { return len(r.byAddr) }

package gateway

import "sync"

// Registry 接続中クライアントの一覧 (userID -> connID -> client)。
// プロセス内のみで保持するため、複数インスタンス構成ではインスタンスを跨いだ配信はできない
type Registry struct {
	mu      sync.RWMutex
	clients map[string]map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]map[string]*Client)}
}

func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.clients[c.userID]
	if !ok {
		conns = make(map[string]*Client)
		r.clients[c.userID] = conns
	}
	conns[c.id] = c
}

// Remove removed は登録されていたか、last はそのユーザーの最後の接続だったか
func (r *Registry) Remove(c *Client) (removed, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.clients[c.userID]
	if !ok {
		return false, false
	}
	if _, ok := conns[c.id]; !ok {
		return false, false
	}
	delete(conns, c.id)
	if len(conns) == 0 {
		delete(r.clients, c.userID)
		return true, true
	}
	return true, false
}

// ClientsOf userID の全接続 (複数端末)
func (r *Registry) ClientsOf(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.clients[userID]
	out := make([]*Client, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Client
	for _, conns := range r.clients {
		for _, c := range conns {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients[userID]) > 0
}

// Count 接続数の合計
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, conns := range r.clients {
		n += len(conns)
	}
	return n
}

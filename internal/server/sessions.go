package server

import (
	"fmt"
	"image"
	"sync"

	"github.com/ironsheep/screen-elements-mcp/internal/pipeline"
)

// defaultMaxSessions bounds the analyses kept in memory. Each one holds a
// decoded screenshot.
const defaultMaxSessions = 16

// session is one analysis together with the image it was computed from.
type session struct {
	analysis *pipeline.Analysis
	image    image.Image
	source   string
	// path is the cached file the image came from; empty for inline images.
	path string
}

// sessionStore keeps recent analyses by run id. The oldest is dropped when
// the store is full. Safe for concurrent use.
type sessionStore struct {
	mu    sync.RWMutex
	max   int
	byID  map[string]*session
	order []string
}

func newSessionStore(max int) *sessionStore {
	if max < 1 {
		max = 1
	}
	return &sessionStore{max: max, byID: make(map[string]*session)}
}

// add stores sess and returns the image paths no remaining session refers
// to once the oldest sessions are dropped.
func (st *sessionStore) add(sess *session) []string {
	st.mu.Lock()
	defer st.mu.Unlock()

	id := sess.analysis.RunID
	if _, ok := st.byID[id]; !ok {
		st.order = append(st.order, id)
	}
	st.byID[id] = sess

	var dropped []*session
	for len(st.order) > st.max {
		dropped = append(dropped, st.byID[st.order[0]])
		delete(st.byID, st.order[0])
		st.order = st.order[1:]
	}

	var stale []string
	for _, old := range dropped {
		if old.path == "" || st.usesPath(old.path) {
			continue
		}
		stale = append(stale, old.path)
	}
	return stale
}

func (st *sessionStore) usesPath(path string) bool {
	for _, sess := range st.byID {
		if sess.path == path {
			return true
		}
	}
	return false
}

// get returns the session for runID, or the most recent one when runID is
// empty.
func (st *sessionStore) get(runID string) (*session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if runID == "" {
		if len(st.order) == 0 {
			return nil, fmt.Errorf("no analysis available; call screen_analyze first")
		}
		runID = st.order[len(st.order)-1]
	}
	sess, ok := st.byID[runID]
	if !ok {
		return nil, fmt.Errorf("unknown run_id: %s", runID)
	}
	return sess, nil
}

func (st *sessionStore) len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byID)
}

// Package registry implements the manager's worker registry and pairing
// algorithm (spec.md §3, §4.2). It follows the shape of the teacher's
// internal/connection/manager.go (a map behind a single mutex, with
// Register/Unregister/Get/Stats methods) but keyed by worker_id instead of
// connection_id, with role-network membership and pairing state instead of
// zipcode grouping.
package registry

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is a single worker's registry entry (spec.md §3 "Worker record").
type Record struct {
	WorkerID       string
	IP             string
	BlastPort      int
	BlastClient    string // worker_id of the peer currently using this worker as a blast server
	LastContact    time.Time
	ConnectErrors  int
	InSrcNetworks  bool
	InDestNetworks bool
	disabledNotice bool // one-shot disablement log/notification already fired
}

// Snapshot is an immutable copy of a Record, safe to hand out without the
// registry's lock held.
type Snapshot = Record

// Registry holds every worker the manager has seen, guarded by a single
// mutex so the pairing scan and the blast_client write it performs are
// atomic with respect to every other request (spec.md §5).
type Registry struct {
	mu               sync.Mutex
	workers          map[string]*Record
	order            []string // insertion order, used for the pairing scan (spec.md §4.2 tie-break)
	srcSpecs         []string
	destSpecs        []string
	maxConnectErrors int
	keepaliveTimeout time.Duration
}

// New creates a registry. srcSpecs/destSpecs are CIDR or exact-IP strings
// defining the sender/receiver network sets (spec.md §6.5 --src/--dest); an
// empty set means "every worker is eligible for that role".
func New(srcSpecs, destSpecs []string, maxConnectErrors int, keepaliveTimeout time.Duration) *Registry {
	return &Registry{
		workers:          make(map[string]*Record),
		srcSpecs:         srcSpecs,
		destSpecs:        destSpecs,
		maxConnectErrors: maxConnectErrors,
		keepaliveTimeout: keepaliveTimeout,
	}
}

// ErrUnknownWorker is returned for any request naming an unregistered
// worker_id (spec.md §7.4).
var ErrUnknownWorker = fmt.Errorf("unknown worker_id")

// Register allocates a new worker_id and records ip/blastPort (spec.md
// §4.1 register_worker). The id is minted the way the teacher mints
// connection ids (uuid.New()), truncated to the spec's 64-bit-entropy hex
// token.
func (r *Registry) Register(ip string, blastPort int, now time.Time) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := newWorkerID()
	rec := &Record{
		WorkerID:       id,
		IP:             ip,
		BlastPort:      blastPort,
		LastContact:    now,
		InSrcNetworks:  matchAny(ip, r.srcSpecs),
		InDestNetworks: matchAny(ip, r.destSpecs),
	}
	r.workers[id] = rec
	r.order = append(r.order, id)

	cp := *rec
	return &cp
}

func newWorkerID() string {
	u := uuid.New()
	// Byte 6 carries the version nibble and byte 8 the variant bits, so take
	// bytes 0-5 and 9-10: 8 fully random bytes, 64 bits of entropy.
	b := make([]byte, 0, 8)
	b = append(b, u[0:6]...)
	b = append(b, u[9:11]...)
	return hex.EncodeToString(b)
}

// matchAny reports whether ip falls within any of specs (each a CIDR or an
// exact IP). An empty specs list matches everything.
func matchAny(ip string, specs []string) bool {
	if len(specs) == 0 {
		return true
	}
	parsed := net.ParseIP(ip)
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		if !strings.Contains(spec, "/") {
			if specIP := net.ParseIP(spec); specIP != nil && parsed != nil && specIP.Equal(parsed) {
				return true
			}
			continue
		}
		if _, ipnet, err := net.ParseCIDR(spec); err == nil && parsed != nil && ipnet.Contains(parsed) {
			return true
		}
	}
	return false
}

// KeepAlive refreshes last_contact for worker_id.
func (r *Registry) KeepAlive(workerID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.workers[workerID]
	if !ok {
		return ErrUnknownWorker
	}
	rec.LastContact = now
	return nil
}

// Get returns a snapshot copy of a worker's record.
func (r *Registry) Get(workerID string) (*Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.workers[workerID]
	if !ok {
		return nil, false
	}
	cp := *rec
	return &cp, true
}

// Touch refreshes last_contact without requiring the worker to exist
// already be known by the caller; returns false if unknown.
func (r *Registry) Touch(workerID string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.workers[workerID]
	if !ok {
		return false
	}
	rec.LastContact = now
	return true
}

// AssignOutcome is the result of a pairing scan (spec.md §4.2).
type AssignOutcome struct {
	RequesterIsSender bool
	Receiver          *Snapshot // nil on a scan miss
}

// Assign runs the get_work pairing algorithm for requesterID (spec.md
// §4.2, steps 1-5). It is executed under the registry's single mutex so the
// scan and the blast_client write are atomic with respect to concurrent
// requests (spec.md §5).
func (r *Registry) Assign(requesterID string, now time.Time) (*AssignOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	requester, ok := r.workers[requesterID]
	if !ok {
		return nil, ErrUnknownWorker
	}

	// Step 1: refresh last_contact.
	requester.LastContact = now

	// Step 2: release any receiver still pointing at this requester.
	for _, id := range r.order {
		if id == requesterID {
			continue
		}
		rec := r.workers[id]
		if rec.BlastClient == requesterID {
			rec.BlastClient = ""
		}
	}

	// Step 3: role gate.
	if !requester.InSrcNetworks {
		return &AssignOutcome{RequesterIsSender: false}, nil
	}

	// Invariant 6 guard: the peer currently holding this requester as ITS
	// receiver (requester.BlastClient, untouched by step 2 above, which only
	// clears OTHER records) must not be handed back to the requester.
	forbidden := requester.BlastClient

	// Step 4: scan in insertion order for the first eligible candidate.
	for _, id := range r.order {
		if id == requesterID || id == forbidden {
			continue
		}
		cand := r.workers[id]

		if !cand.InDestNetworks {
			continue
		}
		if cand.BlastPort == 0 {
			continue
		}
		if cand.IP == requester.IP {
			continue
		}
		if cand.ConnectErrors > r.maxConnectErrors {
			continue
		}
		if now.Sub(cand.LastContact) > r.keepaliveTimeout {
			continue
		}
		if cand.BlastClient != "" {
			holder, exists := r.workers[cand.BlastClient]
			if exists && now.Sub(holder.LastContact) <= r.keepaliveTimeout {
				continue // still held by a live client
			}
		}

		cand.BlastClient = requesterID
		cp := *cand
		return &AssignOutcome{RequesterIsSender: true, Receiver: &cp}, nil
	}

	return &AssignOutcome{RequesterIsSender: true, Receiver: nil}, nil
}

// RecordConnectFailure increments connect_errors for blastID and reports
// whether this call is the one that crosses the disablement threshold for
// the first time (spec.md §4.1 connect_failed).
func (r *Registry) RecordConnectFailure(blastID string) (errors int, justDisabled bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.workers[blastID]
	if !ok {
		return 0, false, ErrUnknownWorker
	}

	rec.ConnectErrors++
	if rec.ConnectErrors == r.maxConnectErrors+1 && !rec.disabledNotice {
		rec.disabledNotice = true
		return rec.ConnectErrors, true, nil
	}
	return rec.ConnectErrors, false, nil
}

// Stats summarizes the registry's current state for operator logging.
type Stats struct {
	RegisteredWorkers int
	EligibleReceivers int
}

// Stats computes Stats as of now.
func (r *Registry) Stats(now time.Time) Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{RegisteredWorkers: len(r.workers)}
	for _, rec := range r.workers {
		if rec.InDestNetworks && rec.BlastPort != 0 &&
			rec.ConnectErrors <= r.maxConnectErrors &&
			now.Sub(rec.LastContact) <= r.keepaliveTimeout {
			s.EligibleReceivers++
		}
	}
	return s
}

package orchestrator

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
)

// Source is the single seeded random stream of a session. It counts draws so
// a restored session continues the same sequence.
type Source struct {
	seed  int64
	draws int64
	rng   *rand.Rand
}

// NewSource creates a Source for seed.
func NewSource(seed int64) *Source {
	return &Source{seed: seed, rng: rand.New(rand.NewSource(seed))}
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

func (s *Source) next() uint64 {
	s.draws++
	return s.rng.Uint64()
}

// Float64 returns a value in [0,1).
func (s *Source) Float64() float64 {
	return float64(s.next()>>11) / (1 << 53)
}

// Intn returns a value in [0,n). It panics if n <= 0.
func (s *Source) Intn(n int) int {
	if n <= 0 {
		panic("orchestrator: Intn called with non-positive n")
	}
	return int(s.next() % uint64(n))
}

// Read fills p from the stream; it never fails.
func (s *Source) Read(p []byte) (int, error) {
	var buf [8]byte
	for i := 0; i < len(p); i += 8 {
		binary.LittleEndian.PutUint64(buf[:], s.next())
		copy(p[i:], buf[:])
	}
	return len(p), nil
}

// NewID returns a UUID drawn from the stream.
func (s *Source) NewID() string {
	return uuid.Must(uuid.NewRandomFromReader(s)).String()
}

func (s *Source) Seed() int64  { return s.seed }
func (s *Source) Draws() int64 { return s.draws }

// Restore reseeds and replays draws values so the stream resumes where a
// snapshot left it.
func (s *Source) Restore(seed, draws int64) {
	s.seed = seed
	s.draws = 0
	s.rng = rand.New(rand.NewSource(seed))
	for s.draws < draws {
		s.next()
	}
}

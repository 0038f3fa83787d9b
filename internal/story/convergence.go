package story

type typePair struct {
	a, b ThreadType
}

type compatibility struct {
	score float64
	kind  ConvergenceKind
}

// compatibilityTable is symmetric; lookups try both orders.
var compatibilityTable = map[typePair]compatibility{
	{TypeRomance, TypeConflict}:       {0.9, KindCollision},
	{TypeMystery, TypePolitical}:      {0.85, KindMerger},
	{TypeMainQuest, TypeSideQuest}:    {0.8, KindSupport},
	{TypePolitical, TypeEconomic}:     {0.8, KindMerger},
	{TypeCharacterArc, TypeRomance}:   {0.8, KindSupport},
	{TypeMainQuest, TypeMystery}:      {0.75, KindMerger},
	{TypePolitical, TypeConflict}:     {0.75, KindOpposition},
	{TypeMystery, TypeConflict}:       {0.7, KindCollision},
	{TypeMainQuest, TypeConflict}:     {0.7, KindCollision},
	{TypeRomance, TypeSocial}:         {0.7, KindSupport},
	{TypeCharacterArc, TypeConflict}:  {0.7, KindOpposition},
	{TypeEconomic, TypeSocial}:        {0.6, KindSupport},
	{TypeEconomic, TypeConflict}:      {0.6, KindOpposition},
	{TypeCharacterArc, TypeMainQuest}: {0.6, KindSupport},
	{TypeRomance, TypePolitical}:      {0.55, KindOpposition},
}

const (
	sameTypeCompatibility    = 0.5
	defaultTypeCompatibility = 0.3
)

// Compatibility returns how well two thread types converge and the kind of
// convergence they suggest.
func Compatibility(a, b ThreadType) (float64, ConvergenceKind) {
	if c, ok := compatibilityTable[typePair{a, b}]; ok {
		return c.score, c.kind
	}
	if c, ok := compatibilityTable[typePair{b, a}]; ok {
		return c.score, c.kind
	}
	if a == b {
		return sameTypeCompatibility, KindMerger
	}
	return defaultTypeCompatibility, KindSupport
}

// SharedParticipants returns participants of t that also appear in other, in
// t's order.
func (t *Thread) SharedParticipants(other *Thread) []string {
	var shared []string
	for _, p := range t.Participants() {
		if other.HasParticipant(p) {
			shared = append(shared, p)
		}
	}
	return shared
}

func stageAlignment(a, b Stage) float64 {
	ra, rb := a.Rank(), b.Rank()
	if ra < 0 || rb < 0 {
		return 0
	}
	switch d := ra - rb; {
	case d == 0:
		return 1
	case d == 1 || d == -1:
		return 0.5
	default:
		return 0
	}
}

// CheckConvergencePotential scores in [0,1] how strongly two threads should
// intersect, from shared participants, type compatibility and stage alignment.
func (t *Thread) CheckConvergencePotential(other *Thread) float64 {
	if other == nil || other.ID == t.ID {
		return 0
	}
	shared := float64(len(t.SharedParticipants(other)))
	compat, _ := Compatibility(t.Type, other.Type)
	score := 0.4*min(1, shared/2) +
		0.35*compat +
		0.25*stageAlignment(t.Stage, other.Stage)
	return Clamp01(score)
}

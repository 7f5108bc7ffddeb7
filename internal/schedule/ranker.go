package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// RankInput is everything a ranking run needs: the free window the operator
// selected, the doctor's appointment set and a fixed "now". The ranker is a
// pure function of this input, so identical runs produce identical output.
type RankInput struct {
	Window       FreeWindow
	Appointments []Appointment
	DoctorCode   string
	Now          time.Time
}

// Ranking is the result of one run: the full eligible set sorted soonest
// first, the preferred subset, and whether more candidates exist beyond it.
type Ranking struct {
	Ideal    []ReplacementCandidate
	Eligible []ReplacementCandidate
	HasMore  bool
}

// StrategyFunc turns the eligible candidate set into a final ranking. The
// eligible slice arrives sorted by ascending anticipation days.
type StrategyFunc func(window FreeWindow, eligible []ReplacementCandidate, rules Rules) Ranking

const (
	StrategyIdeal   = "ideal"
	StrategySoonest = "soonest"
)

var ErrUnknownStrategy = errors.New("unknown ranking strategy")

// StrategyByName resolves a strategy selection parameter. The empty string
// selects the ideal strategy.
func StrategyByName(name string) (StrategyFunc, error) {
	switch name {
	case "", StrategyIdeal:
		return IdealStrategy, nil
	case StrategySoonest:
		return SoonestStrategy, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// RankCandidates selects which conciliated blocks could be advanced into the
// given free window and ranks them with the chosen strategy.
//
// A block is eligible when it fits the window's duration, starts strictly
// after the window (only pulling appointments forward is offered), falls
// within the forward horizon and respects the minimum-notice policy.
func RankCandidates(in RankInput, strategy StrategyFunc, rules Rules) Ranking {
	movable := make([]Appointment, 0, len(in.Appointments))
	for _, a := range in.Appointments {
		if !a.Status.Active() {
			continue
		}
		if rules.MovableActCode != "" && a.MedicalActCode != rules.MovableActCode {
			continue
		}
		movable = append(movable, a)
	}

	blocks := BuildBlocks(movable, in.DoctorCode, rules)

	horizonEnd := in.Now.AddDate(0, 0, rules.HorizonDays)
	earliest := MinimumNoticeDate(in.Window.StartTime, rules.NoticeBusinessDays)

	var eligible []ReplacementCandidate
	for _, b := range blocks {
		if b.TotalDurationMinutes > in.Window.DurationMinutes {
			continue
		}
		if !b.StartTime.After(in.Window.StartTime) {
			continue
		}
		if !b.StartTime.After(in.Now) || !b.StartTime.Before(horizonEnd) {
			continue
		}
		if b.StartTime.Before(earliest) {
			continue
		}
		eligible = append(eligible, ReplacementCandidate{
			ConciliatedBlock: b,
			AnticipationDays: anticipationDays(in.Now, b.StartTime),
		})
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].AnticipationDays != eligible[j].AnticipationDays {
			return eligible[i].AnticipationDays < eligible[j].AnticipationDays
		}
		return eligible[i].StartTime.Before(eligible[j].StartTime)
	})

	if strategy == nil {
		strategy = IdealStrategy
	}
	return strategy(in.Window, eligible, rules)
}

// IdealStrategy keeps the full eligible set and picks a preferred subset of
// at most IdealCount blocks matching the window's weekly rhythm: same
// weekday, first within its next two occurrences, at an hour-of-day within
// an expanding tolerance, then any future occurrence of that weekday. Ties
// within a tolerance level go to the soonest date.
func IdealStrategy(window FreeWindow, eligible []ReplacementCandidate, rules Rules) Ranking {
	targetHour := window.StartTime.Hour()
	targetWeekday := window.StartTime.Weekday()

	occ1 := window.StartTime.AddDate(0, 0, 7)
	occ2 := window.StartTime.AddDate(0, 0, 14)

	picked := make(map[string]bool, rules.IdealCount)
	var ideal []ReplacementCandidate

	pick := func(accept func(ReplacementCandidate) bool) {
		for tol := 0; tol <= rules.MaxHourTolerance && len(ideal) < rules.IdealCount; tol++ {
			for _, c := range eligible {
				if len(ideal) == rules.IdealCount {
					break
				}
				if picked[c.ID] || !accept(c) {
					continue
				}
				if absInt(c.StartTime.Hour()-targetHour) > tol {
					continue
				}
				picked[c.ID] = true
				ideal = append(ideal, c)
			}
		}
	}

	// Next two occurrences of the window's weekday first.
	pick(func(c ReplacementCandidate) bool {
		return sameDay(c.StartTime, occ1) || sameDay(c.StartTime, occ2)
	})
	// Still short: any future occurrence of that weekday.
	pick(func(c ReplacementCandidate) bool {
		return c.StartTime.Weekday() == targetWeekday
	})

	return Ranking{
		Ideal:    ideal,
		Eligible: eligible,
		HasMore:  len(eligible) > len(ideal),
	}
}

// SoonestStrategy is the plain variant: no preferred subset, just the
// soonest eligible blocks up to SoonestLimit.
func SoonestStrategy(window FreeWindow, eligible []ReplacementCandidate, rules Rules) Ranking {
	hasMore := false
	if rules.SoonestLimit > 0 && len(eligible) > rules.SoonestLimit {
		eligible = eligible[:rules.SoonestLimit]
		hasMore = true
	}
	return Ranking{Eligible: eligible, HasMore: hasMore}
}

// MinimumNoticeDate computes the earliest date a patient may be asked to
// move to: the next calendar day after the free window's date, advanced by
// the given number of business days. Saturdays and Sundays do not count and
// a landing on a weekend is pushed forward to Monday.
func MinimumNoticeDate(windowStart time.Time, businessDays int) time.Time {
	y, m, d := windowStart.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, windowStart.Location())

	day = day.AddDate(0, 0, 1)
	for i := 0; i < businessDays; i++ {
		day = day.AddDate(0, 0, 1)
		for isWeekend(day) {
			day = day.AddDate(0, 0, 1)
		}
	}
	return day
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func anticipationDays(now, start time.Time) int {
	d := start.Sub(now)
	if d <= 0 {
		return 0
	}
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

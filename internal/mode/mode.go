// Package mode handles match mode descriptor parsing and capacity
// derivation. A mode descriptor like "2v2" fixes the team size and
// therefore the queue capacity (team size × 2).
package mode

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// modeRegex matches: {teamSize}v{teamSize}, e.g. 1v1, 2v2, 4v4.
var modeRegex = regexp.MustCompile(`^([1-9])v([1-9])$`)

var (
	ErrInvalidMode = errors.New("mode: invalid mode descriptor")
	ErrUnevenTeams = errors.New("mode: team sizes must match")
)

// maxTeamSize mirrors the largest mode the queues offer (4v4).
const maxTeamSize = 4

// Mode is a parsed match mode descriptor.
type Mode struct {
	Descriptor string `json:"descriptor"`
	TeamSize   int    `json:"team_size"`
}

// Capacity returns the number of participants needed to fill the queue.
func (m Mode) Capacity() int {
	return m.TeamSize * 2
}

// Parse parses and validates a mode descriptor string.
// Format: {n}v{n} with n in 1..4.
func Parse(descriptor string) (Mode, error) {
	matches := modeRegex.FindStringSubmatch(descriptor)
	if matches == nil {
		return Mode{}, fmt.Errorf("%w: %q (expected {n}v{n})", ErrInvalidMode, descriptor)
	}

	left, _ := strconv.Atoi(matches[1])
	right, _ := strconv.Atoi(matches[2])

	if left != right {
		return Mode{}, fmt.Errorf("%w: %q", ErrUnevenTeams, descriptor)
	}
	if left > maxTeamSize {
		return Mode{}, fmt.Errorf("%w: %q (max %dv%d)", ErrInvalidMode, descriptor, maxTeamSize, maxTeamSize)
	}

	return Mode{Descriptor: descriptor, TeamSize: left}, nil
}

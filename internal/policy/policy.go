package policy

import (
	"context"

	"github.com/vigil-sec/vigil/internal/captcha"
	"github.com/vigil-sec/vigil/internal/logger"
	"github.com/vigil-sec/vigil/internal/models"
)

// Decision is the enforcement outcome for one request.
type Decision int

const (
	Allow Decision = iota
	Delayed
	ChallengeRequired
	ChallengeFailed
	TemporarilyBlocked
	Banned
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Delayed:
		return "delayed"
	case ChallengeRequired:
		return "challenge_required"
	case ChallengeFailed:
		return "challenge_failed"
	case TemporarilyBlocked:
		return "temp_blocked"
	case Banned:
		return "banned"
	}
	return "unknown"
}

// Blocks reports whether the decision short-circuits the request.
func (d Decision) Blocks() bool {
	switch d {
	case ChallengeRequired, ChallengeFailed, TemporarilyBlocked, Banned:
		return true
	}
	return false
}

// Decide maps an enforcement level and an optional challenge token to a
// Decision. Levels are evaluated top-down; the only fallible dependency is
// challenge verification, which fails closed: a verification error yields
// ChallengeFailed, never Allow. Delayed instructs the caller to pause for
// the configured delay before proceeding; Decide itself never sleeps.
func Decide(ctx context.Context, level models.Level, challengeToken string, verifier captcha.Verifier) Decision {
	switch {
	case level >= models.LevelBan:
		return Banned

	case level >= models.LevelTempBlock:
		return TemporarilyBlocked

	case level >= models.LevelCaptcha:
		if challengeToken == "" {
			return ChallengeRequired
		}
		ok, err := verifier.Verify(ctx, challengeToken)
		if err != nil {
			logger.WithFields(map[string]interface{}{"error": err.Error()}).
				Warn("challenge verification unreachable, failing closed")
			return ChallengeFailed
		}
		if !ok {
			return ChallengeFailed
		}
		return Allow

	case level >= models.LevelDelay:
		return Delayed
	}

	return Allow
}

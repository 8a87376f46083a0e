package humanoid

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// commonNgrams are typed in a quicker burst than unrelated letters.
var commonNgrams = map[string]bool{
	"th": true, "he": true, "in": true, "er": true, "an": true, "re": true,
	"es": true, "on": true, "st": true, "nt": true,
	"the": true, "and": true, "ing": true, "ion": true, "tio": true,
}

// ngramFactor shortens the flight time into runes[i] when it completes a
// common digram or trigram.
func ngramFactor(runes []rune, i int) float64 {
	if i >= 2 && commonNgrams[strings.ToLower(string(runes[i-2:i+1]))] {
		return 0.55
	}
	if i >= 1 && commonNgrams[strings.ToLower(string(runes[i-1:i+1]))] {
		return 0.7
	}
	return 1.0
}

// KeyDelay returns the pause before typing runes[i]: uniform in
// [0, KeyDelayMax], shortened inside common n-grams.
func (p *Pacer) KeyDelay(runes []rune, i int) time.Duration {
	if !p.cfg.Enabled || p.cfg.KeyDelayMax <= 0 {
		return 0
	}
	d := p.uniform(0, p.cfg.KeyDelayMax)
	if i >= 0 && i < len(runes) {
		d = time.Duration(float64(d) * ngramFactor(runes, i))
	}
	return d
}

// Type emits text one character at a time through send, pausing between
// characters.
func (p *Pacer) Type(ctx context.Context, text string, send func(ctx context.Context, char string) error) error {
	runes := []rune(text)
	for i, r := range runes {
		if err := send(ctx, string(r)); err != nil {
			return fmt.Errorf("humanoid: failed to send key %q: %w", r, err)
		}
		if i == len(runes)-1 {
			break
		}
		if err := p.sleep(ctx, p.KeyDelay(runes, i+1)); err != nil {
			return err
		}
	}
	return nil
}

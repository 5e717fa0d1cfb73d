/*
 * This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0.
 * If a copy of the MPL was not distributed with this file, You can obtain one at
 * https://mozilla.org/MPL/2.0/.
 */

package core

// Process performs one pull-style step of the filter's streaming state
// machine, per spec.md §4.5. It consumes as much of in as fits the current
// staging buffer, emits at most len(out) bytes, and tells the caller via
// the returned Action whether to call again with the same in (ActionRepeat),
// move to the next input (ActionNormal), or stop (ActionDataEnd).
//
// Process never blocks and never allocates across calls beyond the fixed
// per-block scratch needed for one CBC operation; it is safe to call
// repeatedly with differently sized in/out buffers.
func (s *Session) Process(in, out []byte, action Action) (int, Action, error) {
	if action == ActionDataEnd {
		s.endSeen = true
	}

	if s.outLeft > 0 {
		return s.drain(in, out)
	}

	need := s.threshold() - s.inFilled
	avail := len(in) - s.producedSinceInput
	take := need
	if avail < take {
		take = avail
	}
	if take > 0 {
		copy(s.in[s.inFilled:], in[s.producedSinceInput:s.producedSinceInput+take])
		s.inFilled += take
		s.producedSinceInput += take
	}

	blockReady := s.inFilled == s.threshold() || (s.inFilled > 0 && s.endSeen)
	if !blockReady {
		s.producedSinceInput = 0
		if s.endSeen && s.inFilled == 0 {
			// Nothing staged and the host has nothing more to offer:
			// there is no block left to ever produce from, so this is
			// the terminal call rather than a request for more input.
			return 0, ActionDataEnd, nil
		}
		return 0, ActionNormal, nil
	}

	if s.mode == Upload {
		s.encryptBlock(s.in[:s.inFilled])
	} else if err := s.decryptBlock(s.in[:s.inFilled]); err != nil {
		s.inFilled = 0
		return 0, ActionNormal, err
	}
	s.inFilled = 0

	return s.emit(in, out)
}

// drain copies previously staged output (from a block that didn't fit in
// a prior call's out buffer) into the caller's out buffer.
func (s *Session) drain(in, out []byte) (int, Action, error) {
	start := s.outFilled - s.outLeft
	if s.outLeft > len(out) {
		n := copy(out, s.out[start:start+len(out)])
		s.outLeft -= n
		return n, ActionRepeat, nil
	}

	n := copy(out, s.out[start:s.outFilled])
	s.outLeft = 0
	s.outFilled = 0

	if s.producedSinceInput == len(in) {
		s.producedSinceInput = 0
		if s.endSeen {
			return n, ActionDataEnd, nil
		}
		return n, ActionNormal, nil
	}
	return n, ActionRepeat, nil
}

// emit delivers a just-produced block (in s.out[:s.outFilled]) to the
// caller, staging any overflow for the next call(s).
func (s *Session) emit(in, out []byte) (int, Action, error) {
	if s.outFilled > len(out) {
		n := copy(out, s.out[:len(out)])
		s.outLeft = s.outFilled - len(out)
		return n, ActionRepeat, nil
	}

	n := copy(out, s.out[:s.outFilled])
	s.outFilled = 0

	if s.producedSinceInput == len(in) {
		s.producedSinceInput = 0
		if s.endSeen {
			return n, ActionDataEnd, nil
		}
		return n, ActionNormal, nil
	}
	return n, ActionRepeat, nil
}

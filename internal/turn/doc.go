// Package turn runs the listening loop of the assistant: wait for the wake
// word, record one utterance, hand it to a [Responder], repeat.
//
// Three pieces cooperate on a single goroutine:
//
//   - [Gate] reads fixed-length frames from a [Source] until the keyword
//     spotter reports a match.
//   - [Segmenter] classifies frames with a VAD session and cuts one utterance
//     out of the stream using a speech trigger, pre-roll and a silence
//     hangover.
//   - [Controller] sequences the two, owns the current [Phase] and notifies
//     every [Observer] of phase changes and messages.
//
// Cancellation is cooperative. A [Token] is passed explicitly into every loop;
// the loops poll it every CheckEvery frames and a stopped token also cancels
// the context handed to [Source.Take], so a stalled capture device cannot hold
// the controller hostage.
package turn

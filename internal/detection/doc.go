// Package detection turns per-chunk classifier output into reportable
// detections.
//
// The package provides:
//   - Aggregator: per-species sliding windows requiring repeated evidence
//     before a species is confirmed
//   - FinalFilter: the live second stage combining high confidence anchors
//     with confirmed species, one species per taxonomic family
//   - Session: the live session state machine that owns both
package detection

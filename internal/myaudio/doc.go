// Package myaudio turns decoded or captured PCM into classifier-ready chunks.
//
// Chunks are produced by ReadAudioFile for WAV and FLAC files and by Chunker
// for live 16-bit capture. ChunkProcessor screens each chunk for silence,
// clipping and out-of-band energy before it is filtered and normalized.
//
// Ownership: every Chunk handed to a callback owns its sample slice. A
// ChunkProcessor holds a private work buffer and must not be shared between
// goroutines; each pipeline worker constructs its own.
package myaudio

// Package enrich asks an LLM to canonicalize the entities, tags and chapters
// of a transcript and sanitizes what comes back.
//
// The request carries video metadata, transcript stats, the aggregated NER
// candidates and a character-budgeted slice of transcript chunks. Replies are
// decoded strictly against a fixed schema; everything downstream of Run can
// rely on the caps and ordering applied by Sanitize.
package enrich

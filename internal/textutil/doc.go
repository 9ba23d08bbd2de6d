// Package textutil provides the small text helpers shared by the chapter and
// entity engines: word tokenization, Jaccard similarity over token sets, and
// safe tokens for object and file names.
//
// Tokenization lowercases text, splits on anything that is not an ASCII word
// character, and drops tokens shorter than 3 characters.
package textutil

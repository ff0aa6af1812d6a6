// Package story defines the domain types, collaborator interfaces, and error
// taxonomy shared by the scraper, the chapter pipeline, and the EPUB assembler.
package story

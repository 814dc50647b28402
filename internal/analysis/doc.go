// Package analysis defines the core types and collaborator interfaces shared by
// the genre analysis pipeline: the data gateway, the callback notifier, the work
// queue and the outcome publisher.
package analysis

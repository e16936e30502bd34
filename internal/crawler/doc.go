// Package crawler implements link discovery for the archive pipeline: a light
// HTTP fetch with escalation to a headless browser, bot-challenge handling,
// jittered retries and classification of unreachable domains. It also holds
// the task and collaborator types shared by the archiver and coordinator.
package crawler

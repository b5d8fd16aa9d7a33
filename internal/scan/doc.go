// Package scan screens inbound attachments before classification.
//
// The scanner runs rule-based threat detection over the attachment
// filename and raw bytes: executable payloads, masqueraded extensions,
// macro-bearing documents, script smuggling. It is the built-in
// implementation of the pipeline's SecurityScanner; deployments with a
// real antivirus gateway swap it out at wiring time.
package scan

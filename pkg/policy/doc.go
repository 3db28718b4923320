// Package policy enforces the capability allow-list for executing documents.
// Capabilities (the HTTP fetch library, filesystem access, and so on) are
// granted per invocation; requests are evaluated through Rego policies so
// operators can layer custom restrictions, such as limiting which hosts a
// document may fetch from, on top of the built-in allow-list rule.
package policy

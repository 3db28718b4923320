package policy

// builtinAllowListPolicy denies any capability that is not on the
// invocation's allow-list.
const builtinAllowListPolicy = `package weft.capability

import rego.v1

deny contains msg if {
	not input.allowed[input.capability]
	msg := sprintf("capability %q is not allowed; enable it with --allow %s", [input.capability, input.capability])
}
`

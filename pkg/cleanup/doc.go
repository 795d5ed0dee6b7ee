// Package cleanup deletes downloaded media once it has been posted or has
// failed for good. Each delete is retried a few times before the failure is
// logged; a file that cannot be deleted never stops a cycle.
package cleanup

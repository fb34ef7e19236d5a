// Package hoist re-partitions oversized leaves of a chunk tree.
//
// A leaf longer than the bound is split around one bracketed region
// (If/EndIf or a depth scope): a prefix leaf, a gate node wrapping the
// bracket, and an optional postfix leaf. The gate's interior is cut into
// slices at the bracket's own top level, so no slice ever straddles an
// inner bracket or starts at a terminator. Inner brackets that are still
// too long become nested gates.
//
// Hoisting changes only how the tape is grouped into chunks. Running a
// hoisted tree produces exactly the output of the unhoisted one.
package hoist

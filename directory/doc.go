// Package directory implements the dirgate DirectoryClient against an
// LDAP/Active Directory server: user-bind credential checks, admin group
// membership, and write-through password and account-status changes.
package directory

// Package ledger keeps the permanent record of media ids that have been
// posted so the same item is never selected twice.
//
// The ledger only grows. Entries are removed by editing the file by hand;
// duplicate ids introduced that way are collapsed on load.
package ledger

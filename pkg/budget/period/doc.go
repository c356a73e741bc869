// Package period computes budget reset boundaries and runs reset sweeps.
//
// Boundaries are UTC calendar boundaries: daily at midnight, weekly on
// Sunday midnight, monthly on the first of the month. A sweep resets every
// active budget whose boundary has passed and is safe to run repeatedly or
// concurrently: the second run finds nothing due.
package period

// Package monitor defines the operation-outcome observer contract. Every
// register/discover/send/broadcast/history/task-transition operation reports
// its outcome and duration through a Monitor; the default NoOp sink makes the
// absence of external observability a non-event for correctness.
package monitor

// Package mpc builds the risk-aware dispatch program for one control step and
// runs the receding-horizon controller on top of it.
//
// Every slot of the horizon owns a block of eight variables (see Field). The
// grid-tied block describes normal economic dispatch, the islanded block a
// hypothetical outage starting one slot after the decision. Both trajectories
// start from the same measured state of charge and are weighted by the outage
// probability in the objective.
package mpc

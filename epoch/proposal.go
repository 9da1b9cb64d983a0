package epoch

// ProposeLeaderEpochChange records that this replica is becoming leader at
// epoch e, without yet binding a start offset to it. It is a no-op if e is
// not strictly greater than the current latest epoch: epochs never go
// backwards, even as proposals, and a repeated or stale proposal should not
// disturb a pending one.
//
// A later call with any epoch greater than the latest committed epoch
// overwrites a still-pending proposal, even one with a higher epoch; only
// the most recent proposal survives until it is flushed.
func (c *EpochCache) ProposeLeaderEpochChange(e int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e > c.latestEpochLocked() {
		c.proposedEpoch = e
		c.proposalPending = true
	}
}

// EpochForLeaderMessageAppend returns the epoch the log append path should
// stamp onto outgoing records: the pending proposal's epoch if one exists,
// otherwise the latest committed epoch. It does not commit the proposal —
// repeated calls return the same value until MaybeFlushUncommittedEpochs
// runs.
func (c *EpochCache) EpochForLeaderMessageAppend() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proposalPending {
		return c.proposedEpoch
	}
	return c.latestEpochLocked()
}

// MaybeFlushUncommittedEpochs materializes any pending proposal into the
// committed history, binding its start offset to the log-end offset at the
// moment of the call, then clears the proposal regardless of whether the
// resulting Assign was accepted.
//
// A rejected Assign (the proposed epoch or the log-end offset no longer
// satisfies the monotonicity rules in §4.3 by the time of flush, e.g. a
// higher epoch was assigned directly via the follower path first) is not
// treated as an
// error: the stamp has already been applied to appended records, and there
// is nothing further this call can do about it. It is surfaced only as a
// diagnostic log line, per the documented open question this behavior
// preserves.
func (c *EpochCache) MaybeFlushUncommittedEpochs() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.proposalPending {
		return nil
	}

	epoch := c.proposedEpoch
	startOffset := c.leo()
	c.proposalPending = false
	c.proposedEpoch = UndefinedEpoch

	before := len(c.entries)
	if err := c.assignLocked(epoch, startOffset); err != nil {
		return err
	}
	if len(c.entries) == before {
		c.log.Debugf(
			"leader epoch cache [%s]: flush of proposed epoch %d at offset %d was rejected by assignment rules",
			c.topicPartition, epoch, startOffset,
		)
	}
	return nil
}

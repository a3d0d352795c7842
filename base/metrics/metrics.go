package metrics

const (
	BusEventsPublishedH = "The total number of events published on a bus"
	BusEventsPublishedN = "gpsdo_bus_events_published"
	BusCallbackPanicsH  = "The total number of subscriber panics recovered during delivery"
	BusCallbackPanicsN  = "gpsdo_bus_callback_panics"
	BusSlowCallbacksH   = "The total number of subscriber callbacks that exceeded the slow threshold"
	BusSlowCallbacksN   = "gpsdo_bus_slow_callbacks"

	PairPPSPairsH    = "The total number of PPS pairs published"
	PairPPSPairsN    = "gpsdo_pair_pps_pairs"
	PairPPSMissesH   = "The total number of PPS events without a counterpart in the pairing window"
	PairPPSMissesN   = "gpsdo_pair_pps_misses"
	PairQerrAppliedH = "The total number of PPS pairs corrected with a quantization error"
	PairQerrAppliedN = "gpsdo_pair_qerr_applied"
	PairQerrDroppedH = "The total number of PPS pairs dropped for lack of a matching quantization error"
	PairQerrDroppedN = "gpsdo_pair_qerr_dropped"

	SyncPhaseStepsH      = "The total number of hardware phase steps issued"
	SyncPhaseStepsN      = "gpsdo_sync_phase_steps"
	SyncModeTransitionsH = "The total number of phase watch mode transitions"
	SyncModeTransitionsN = "gpsdo_sync_mode_transitions"
	SyncModeH            = "The current phase watch mode (0: startup, 1: step, 2: coarse tune, 3: fine tune)"
	SyncModeN            = "gpsdo_sync_mode"
	SyncPhaseErrorH      = "The last phase error of the oscillator relative to the reference, in seconds"
	SyncPhaseErrorN      = "gpsdo_sync_phase_error_seconds"
	SyncDACCodeH         = "The last actuator code written to the DAC"
	SyncDACCodeN         = "gpsdo_sync_dac_code"
	SyncStepInFlightH    = "Whether a hardware phase step is in flight"
	SyncStepInFlightN    = "gpsdo_sync_step_in_flight"
	SyncFreqErrorH       = "The mean fractional frequency error of the oscillator, in ppb"
	SyncFreqErrorN       = "gpsdo_sync_freq_error_ppb"

	DACWritesH      = "The total number of DAC writes"
	DACWritesN      = "gpsdo_dac_writes"
	DACWriteErrorsH = "The total number of failed DAC writes"
	DACWriteErrorsN = "gpsdo_dac_write_errors"

	TICLinesH    = "The total number of timestamp lines read from the time interval counter"
	TICLinesN    = "gpsdo_tic_lines"
	TICBadLinesH = "The total number of unparseable lines read from the time interval counter"
	TICBadLinesN = "gpsdo_tic_bad_lines"

	F9TFramesH       = "The total number of UBX frames read from the GNSS receiver"
	F9TFramesN       = "gpsdo_f9t_frames"
	F9TBadChecksumsH = "The total number of UBX frames with a bad checksum"
	F9TBadChecksumsN = "gpsdo_f9t_bad_checksums"
)

package otel

import "github.com/MrEthical07/authcore"

type counterDef struct {
	id   authcore.MetricID
	name string
	help string
}

var counterDefs = []counterDef{
	{authcore.MetricLoginSuccess, "authcore_login_success_total", "Successful password logins."},
	{authcore.MetricLoginFailure, "authcore_login_failure_total", "Failed password logins."},
	{authcore.MetricLoginRateLimited, "authcore_login_rate_limited_total", "Logins rejected by the failed-attempt limiter."},
	{authcore.MetricRegisterSuccess, "authcore_register_success_total", "Successful registrations."},
	{authcore.MetricRegisterDuplicate, "authcore_register_duplicate_total", "Registrations rejected for a taken email."},
	{authcore.MetricSocialLoginSuccess, "authcore_social_login_success_total", "Successful social logins."},
	{authcore.MetricSocialLoginFailure, "authcore_social_login_failure_total", "Failed social logins."},
	{authcore.MetricRefreshSuccess, "authcore_refresh_success_total", "Successful token rotations."},
	{authcore.MetricRefreshFailure, "authcore_refresh_failure_total", "Failed token rotations."},
	{authcore.MetricRefreshRaceLost, "authcore_refresh_race_lost_total", "Rotations that lost the conditional revoke."},
	{authcore.MetricLogout, "authcore_logout_total", "Single-session logouts."},
	{authcore.MetricLogoutAll, "authcore_logout_all_total", "Logout-all operations."},
	{authcore.MetricReplayRejected, "authcore_replay_rejected_total", "Requests rejected by the replay guard."},
	{authcore.MetricTokenCacheHit, "authcore_token_cache_hit_total", "Access tokens resolved from the token cache."},
	{authcore.MetricTokenCacheMiss, "authcore_token_cache_miss_total", "Access tokens verified and loaded."},
	{authcore.MetricAuthenticateFailure, "authcore_authenticate_failure_total", "Rejected access tokens."},
	{authcore.MetricPasswordChangeSuccess, "authcore_password_change_success_total", "Successful password changes."},
	{authcore.MetricPasswordChangeInvalidCurrent, "authcore_password_change_invalid_current_total", "Password changes with a wrong current password."},
	{authcore.MetricPasswordResetRequest, "authcore_password_reset_request_total", "Password reset requests."},
	{authcore.MetricPasswordResetSuccess, "authcore_password_reset_success_total", "Completed password resets."},
	{authcore.MetricEmailVerificationRequest, "authcore_email_verification_request_total", "Email verification requests."},
	{authcore.MetricEmailVerificationSuccess, "authcore_email_verification_success_total", "Completed email verifications."},
	{authcore.MetricVerificationRateLimited, "authcore_verification_rate_limited_total", "Verification tokens refused by the per-user window."},
	{authcore.MetricPasswordRehash, "authcore_password_rehash_total", "Hashes upgraded after a successful login."},
}

type histogramDef struct {
	id   authcore.MetricID
	name string
}

var histogramDefs = []histogramDef{
	{authcore.MetricAuthenticateLatency, "authcore_authenticate_latency_seconds"},
}

// boundSuffix names the upper bound of each latency bucket.
var boundSuffix = [bucketCount]string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

const bucketCount = 8

// cumulative turns non-cumulative bucket counts into running totals. Missing
// buckets count as zero.
func cumulative(raw []uint64) [bucketCount]uint64 {
	var out [bucketCount]uint64
	var running uint64
	for i := 0; i < bucketCount; i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}

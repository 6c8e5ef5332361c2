package config

// Diff computes the ConfigChange between an old and a new configuration:
// add (new, not in old), remove (old, not in new),
// enable/disable (Enabled changed), update (any launch-relevant field
// changed while Enabled is unchanged). Changes are returned with removes
// ordered before adds so that a prefix can be reused across a swap.
func Diff(old, new *MaggConfig) *ConfigChange {
	change := &ConfigChange{OldConfig: old, NewConfig: new}

	var removes, rest []ServerChange

	for name, oldServer := range old.Servers {
		newServer, stillPresent := new.Servers[name]
		if !stillPresent {
			removes = append(removes, ServerChange{Name: name, Action: ActionRemove, OldConfig: oldServer})
			continue
		}
		if oldServer.Enabled != newServer.Enabled {
			action := ActionDisable
			if newServer.Enabled {
				action = ActionEnable
			}
			rest = append(rest, ServerChange{Name: name, Action: action, OldConfig: oldServer, NewConfig: newServer})
			continue
		}
		if serverLaunchChanged(oldServer, newServer) {
			rest = append(rest, ServerChange{Name: name, Action: ActionUpdate, OldConfig: oldServer, NewConfig: newServer})
		}
	}

	for name, newServer := range new.Servers {
		if _, existedBefore := old.Servers[name]; !existedBefore {
			rest = append(rest, ServerChange{Name: name, Action: ActionAdd, NewConfig: newServer})
		}
	}

	change.ServerChanges = append(removes, rest...)
	return change
}

// serverLaunchChanged reports whether any launch-relevant field
// (source, prefix, command, args, uri, env, cwd, transport) differs between
// two ServerConfig values for the same server name.
func serverLaunchChanged(a, b *ServerConfig) bool {
	if a.Source != b.Source || a.Prefix != b.Prefix || a.Command != b.Command || a.URI != b.URI || a.Cwd != b.Cwd {
		return true
	}
	if !stringSliceEqual(a.Args, b.Args) {
		return true
	}
	if !stringMapEqual(a.Env, b.Env) {
		return true
	}
	return !transportEqual(a.Transport, b.Transport)
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringMapEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func transportEqual(a, b *TransportOptions) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.KeepAlive != b.KeepAlive || a.PythonCmd != b.PythonCmd || a.NodeCmd != b.NodeCmd ||
		a.PythonVersion != b.PythonVersion || a.FromPackage != b.FromPackage ||
		a.UsePackageLock != b.UsePackageLock || a.SSEReadTimeout != b.SSEReadTimeout {
		return false
	}
	if !stringSliceEqual(a.WithPackages, b.WithPackages) {
		return false
	}
	if !authEqual(a.Auth, b.Auth) {
		return false
	}
	return stringMapEqual(a.Headers, b.Headers)
}

func authEqual(a, b *AuthOption) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.Bearer != b.Bearer {
		return false
	}
	ao, bo := a.OAuth, b.OAuth
	if ao == nil && bo == nil {
		return true
	}
	if ao == nil || bo == nil {
		return false
	}
	return ao.Issuer == bo.Issuer && ao.ClientID == bo.ClientID && stringSliceEqual(ao.Scopes, bo.Scopes)
}

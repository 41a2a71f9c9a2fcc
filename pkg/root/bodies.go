package root

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mooreio/mio/pkg/config"
	"github.com/mooreio/mio/pkg/engine"
	"github.com/mooreio/mio/pkg/ip"
	"github.com/mooreio/mio/pkg/scheduler"
	"github.com/mooreio/mio/pkg/service"
)

// Bodies returns the engine logic of every phase group, bound to rt.
func (rt *Runtime) Bodies() engine.Bodies {
	b := engine.Bodies{}
	b.Add(engine.GroupInit, rt.init)
	b.Add(engine.GroupLoadDefaultConfiguration, rt.loadDefaultConfiguration)
	b.Add(engine.GroupLoadUserData, rt.loadUserData)
	b.Add(engine.GroupAuthenticate, rt.authenticate)
	b.Add(engine.GroupSaveUserData, rt.saveUserData)
	b.Add(engine.GroupLocateProjectFile, rt.locateProjectFile)
	b.Add(engine.GroupValidateProjectFile, rt.validateProjectFile)
	b.Add(engine.GroupLoadUserConfiguration, rt.loadUserConfiguration)
	b.Add(engine.GroupLoadProjectConfiguration, rt.loadProjectConfiguration)
	b.Add(engine.GroupValidateConfigurationSpace, rt.mergeConfiguration)
	b.Add(engine.GroupValidateConfigurationSpace, rt.validateConfiguration)
	b.Add(engine.GroupSchedulerDiscovery, rt.schedulerDiscovery)
	b.Add(engine.GroupServiceDiscovery, rt.serviceDiscovery)
	b.Add(engine.GroupIPDiscovery, rt.ipDiscovery)
	b.Add(engine.GroupCreateCommonFilesAndDirectories, rt.createCommonFilesAndDirectories)
	b.Add(engine.GroupCleanup, rt.cleanup)
	b.Add(engine.GroupShutdown, rt.shutdown)
	return b
}

// abort attaches err to p and stops the run after the current group.
func abort(p *engine.Phase, err error) {
	p.SetError(err)
	p.EndProcess("")
}

func (rt *Runtime) init(_ context.Context, p *engine.Phase) {
	wd := rt.opts.WorkingDir
	if wd == "" {
		cwd, err := os.Getwd()
		if err != nil {
			abort(p, engine.NewFatalError("failed to determine the working directory", err))
			return
		}
		wd = cwd
	}
	abs, err := filepath.Abs(wd)
	if err != nil {
		abort(p, engine.NewUserError(fmt.Sprintf("invalid working directory '%s'", wd), err))
		return
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		abort(p, engine.NewUserError(fmt.Sprintf("working directory '%s' does not exist", wd), err).
			WithCode(engine.ErrCodeNotFound))
		return
	}
	rt.WorkingDir = abs

	rt.HomeDir = rt.opts.HomeDir
	if rt.HomeDir == "" {
		rt.HomeDir = config.HomeDir()
	}
	rt.Loader = config.NewLoader(rt.HomeDir)
	rt.Logger.WithField("wd", rt.WorkingDir).WithField("home", rt.HomeDir).Debug("runtime initialized")
}

func (rt *Runtime) loadDefaultConfiguration(_ context.Context, p *engine.Phase) {
	layer, err := rt.Loader.LoadDefault()
	if err != nil {
		abort(p, engine.NewFatalError("failed to load the default configuration", err))
		return
	}
	rt.DefaultLayer = layer
}

func (rt *Runtime) loadUserData(_ context.Context, p *engine.Phase) {
	user, err := config.LoadUser(rt.UserFile())
	if err != nil {
		abort(p, engine.NewUserError("failed to load user data", err).WithCode(engine.ErrCodeValidation))
		return
	}
	if rt.opts.Username != "" && rt.opts.Username != user.Username {
		user.Username = rt.opts.Username
		user.Logout()
	}
	user.Password = rt.opts.Password
	if user.Password == "" {
		user.Password = os.Getenv(PasswordEnv)
	}
	rt.User = user
}

func (rt *Runtime) authenticate(ctx context.Context, p *engine.Phase) {
	marketplaceURL, timeout := defaultMarketplace(rt.DefaultLayer)
	rt.ensureMarketplace(marketplaceURL, timeout)

	if rt.User.Authenticated && rt.User.Token != "" {
		rt.Marketplace.SetToken(rt.User.Token)
		return
	}
	if rt.User.Username == "" {
		abort(p, engine.NewUserError("a username is required to authenticate: run 'mio login -u USERNAME'", nil).
			WithCode(engine.ErrCodeAuthentication))
		return
	}
	if rt.User.Password == "" {
		abort(p, engine.NewUserError(fmt.Sprintf("a password is required to authenticate '%s': use -p or %s", rt.User.Username, PasswordEnv), nil).
			WithCode(engine.ErrCodeAuthentication))
		return
	}

	token, err := rt.Marketplace.Authenticate(ctx, rt.User.Username, rt.User.Password)
	if err != nil {
		abort(p, engine.NewDomainError(fmt.Sprintf("failed to authenticate '%s'", rt.User.Username), err).
			WithCode(engine.ErrCodeAuthentication))
		return
	}
	rt.User.Token = token
	rt.User.Authenticated = true
	rt.Logger.WithField("user", rt.User.Username).Debug("authenticated")
}

func (rt *Runtime) saveUserData(_ context.Context, p *engine.Phase) {
	if err := rt.User.Save(rt.UserFile()); err != nil {
		p.SetError(engine.NewDomainError("failed to save user data", err).WithCode(engine.ErrCodeFilesystem))
	}
}

func (rt *Runtime) locateProjectFile(_ context.Context, p *engine.Phase) {
	path, err := config.LocateProjectFile(rt.WorkingDir)
	if err != nil {
		if errors.Is(err, config.ErrProjectFileNotFound) {
			abort(p, engine.NewUserError(err.Error(), nil).WithCode(engine.ErrCodeNotFound))
			return
		}
		abort(p, engine.NewDomainError("failed to locate the project file", err).WithCode(engine.ErrCodeFilesystem))
		return
	}
	rt.ProjectFile = path
	rt.ProjectDir = filepath.Dir(path)
	rt.MioDir = filepath.Join(rt.ProjectDir, MioDirName)
}

func (rt *Runtime) validateProjectFile(_ context.Context, p *engine.Phase) {
	if err := config.CheckSyntax(rt.ProjectFile); err != nil {
		abort(p, engine.NewUserError("project file is not valid TOML", err).WithCode(engine.ErrCodeValidation))
	}
}

func (rt *Runtime) loadUserConfiguration(_ context.Context, p *engine.Phase) {
	layer, err := rt.Loader.LoadUser()
	if err != nil {
		abort(p, engine.NewUserError("failed to load the user configuration", err).WithCode(engine.ErrCodeValidation))
		return
	}
	rt.UserLayer = layer
}

func (rt *Runtime) loadProjectConfiguration(_ context.Context, p *engine.Phase) {
	layer, err := rt.Loader.LoadFile(rt.ProjectFile)
	if err != nil {
		abort(p, engine.NewUserError("failed to load the project configuration", err).WithCode(engine.ErrCodeValidation))
		return
	}
	rt.ProjectLayer = layer
}

func (rt *Runtime) mergeConfiguration(_ context.Context, p *engine.Phase) {
	cfg, err := config.Merge(rt.DefaultLayer, rt.UserLayer, rt.ProjectLayer)
	if err != nil {
		abort(p, engine.NewUserError("failed to merge the configuration space", err).WithCode(engine.ErrCodeValidation))
		return
	}
	rt.Config = cfg
}

func (rt *Runtime) validateConfiguration(_ context.Context, p *engine.Phase) {
	if rt.Config == nil {
		return
	}
	if err := rt.Config.Validate(); err != nil {
		abort(p, engine.NewUserError("the configuration space is invalid", err).WithCode(engine.ErrCodeValidation))
		return
	}

	rt.ensureMarketplace(rt.Config.Marketplace.URL, time.Duration(rt.Config.Marketplace.Timeout)*time.Second)
	rt.IPs = rt.newDatabase()
}

func (rt *Runtime) schedulerDiscovery(_ context.Context, p *engine.Phase) {
	opts := scheduler.Options{Logger: rt.opts.Telemetry.Logger, Metrics: rt.Metrics}
	cfg := rt.Config.Scheduler

	candidates := []scheduler.Scheduler{scheduler.NewLocal(opts)}
	if cfg.SSH.Host != "" {
		ssh, err := scheduler.NewSSHFromConfig(cfg.SSH, opts)
		if err != nil {
			rt.Logger.WithField("host", cfg.SSH.Host).WithError(err).Warn("ssh scheduler disabled")
		} else {
			rt.sshSched = ssh
			candidates = append(candidates, ssh)
		}
	}
	candidates = append(candidates, scheduler.NewLSF(cfg.LSF, opts), scheduler.NewGridEngine(cfg.GridEngine, opts))

	for _, s := range candidates {
		if err := rt.Schedulers.Register(s); err != nil {
			p.SetError(engine.NewDomainError("failed to register job scheduler", err))
			return
		}
	}

	rt.JobConfig = scheduler.Configuration{
		Output:      rt.Out,
		MaxParallel: cfg.MaxParallel,
	}
	if _, err := rt.DefaultScheduler(); err != nil {
		// only commands running jobs care
		rt.Logger.WithError(err).Debug("no default job scheduler")
	}
}

func (rt *Runtime) serviceDiscovery(_ context.Context, p *engine.Phase) {
	paths := service.Paths{ProjectDir: rt.ProjectDir, MioDir: rt.MioDir}
	dsim := service.NewDSim(paths, rt.Config, rt.IPs, rt.opts.Telemetry.Logger)
	dsim.SetJobConfiguration(rt.JobConfig)

	if err := rt.Services.Register(dsim); err != nil {
		p.SetError(engine.NewDomainError("failed to register service", err))
		return
	}

	if sched, err := rt.DefaultScheduler(); err == nil {
		rt.encryptor = service.NewIPEncryptor(rt.Services, sched)
		rt.IPs.SetEncryptor(rt.encryptor)
	}
}

func (rt *Runtime) ipDiscovery(_ context.Context, p *engine.Phase) {
	if err := rt.discoverIPs(); err != nil {
		abort(p, err)
	}
}

// RefreshIPs replaces the IP database with a fresh discovery of every search
// path. Descriptors edited since the last discovery are read again.
func (rt *Runtime) RefreshIPs() error {
	if rt.Config == nil {
		return engine.NewFatalError("IPs cannot be discovered before the configuration is loaded", nil)
	}
	rt.IPs = rt.newDatabase()
	return rt.discoverIPs()
}

func (rt *Runtime) newDatabase() *ip.Database {
	var remote ip.Remote = rt.Marketplace
	if rt.Config.Authentication.Offline {
		remote = nil
	}
	return ip.NewDatabase(ip.Options{
		InstalledDir: rt.InstalledDir(),
		TempDir:      rt.TempDir(),
		Remote:       remote,
		Encryptor:    rt.encryptor,
		Logger:       rt.opts.Telemetry.Logger,
		Metrics:      rt.Metrics,
		Tracer:       rt.Tracer,
	})
}

func (rt *Runtime) discoverIPs() error {
	for _, path := range rt.Config.IP.LocalPaths {
		if _, err := rt.IPs.Discover(rt.projectPath(path), ip.LocationLocal, true, false); err != nil {
			return err
		}
	}
	if _, err := rt.IPs.Discover(rt.InstalledDir(), ip.LocationInstalled, true, false); err != nil {
		return err
	}
	for _, path := range rt.Config.IP.GlobalPaths {
		if _, err := rt.IPs.Discover(rt.projectPath(path), ip.LocationGlobal, false, false); err != nil {
			rt.Logger.WithField("path", path).WithError(err).Warn("skipping global IP path")
		}
	}
	return rt.IPs.ResolveLocalDependencies()
}

func (rt *Runtime) createCommonFilesAndDirectories(_ context.Context, p *engine.Phase) {
	for _, dir := range []string{rt.MioDir, rt.TempDir(), rt.InstalledDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			abort(p, engine.NewDomainError(fmt.Sprintf("failed to create '%s'", dir), err).WithCode(engine.ErrCodeFilesystem))
			return
		}
	}
	for _, s := range rt.Services.All() {
		if err := s.CreateDirectoryStructure(); err != nil {
			abort(p, engine.NewDomainError(fmt.Sprintf("failed to create directories for %s", s.FullName()), err).
				WithCode(engine.ErrCodeFilesystem))
			return
		}
		if err := s.CreateFiles(); err != nil {
			abort(p, engine.NewDomainError(fmt.Sprintf("failed to create files for %s", s.FullName()), err).
				WithCode(engine.ErrCodeFilesystem))
			return
		}
	}
}

func (rt *Runtime) cleanup(_ context.Context, p *engine.Phase) {
	if rt.Config == nil || !rt.Config.Telemetry.MetricsTextfile || rt.MioDir == "" {
		return
	}
	if err := rt.Metrics.WriteTextfile(filepath.Join(rt.MioDir, metricsFileName)); err != nil {
		rt.Logger.WithError(err).Warn("failed to write metrics")
	}
}

func (rt *Runtime) shutdown(_ context.Context, _ *engine.Phase) {
	if rt.sshSched != nil {
		if err := rt.sshSched.Close(); err != nil {
			rt.Logger.WithError(err).Debug("failed to close ssh scheduler")
		}
		rt.sshSched = nil
	}
}

func (rt *Runtime) projectPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(rt.ProjectDir, path)
}

// defaultMarketplace reads the marketplace location from the default layer,
// the only layer loaded when authentication runs.
func defaultMarketplace(layer map[string]any) (string, time.Duration) {
	url := ""
	timeout := 30 * time.Second
	section, _ := layer["marketplace"].(map[string]any)
	if v, ok := section["url"].(string); ok {
		url = v
	}
	switch v := section["timeout_seconds"].(type) {
	case int64:
		timeout = time.Duration(v) * time.Second
	case int:
		timeout = time.Duration(v) * time.Second
	}
	return url, timeout
}

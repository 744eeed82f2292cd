package bootstrap

import (
	"strings"

	"github.com/cfilipov/blogd/internal/theme"
)

// SignalAttribute carries the system signal the server rendered with.
// "unknown" tells the inline script to resolve from matchMedia itself.
const SignalAttribute = "data-signal"

// inlineScript runs in <head> before anything paints. It only corrects the
// server-rendered marker when the server had no system signal, and follows
// system changes until the client runtime attaches and takes over.
const inlineScript = `(function(){
  var root=document.documentElement;
  var media=window.matchMedia?window.matchMedia('(prefers-color-scheme: dark)'):null;
  var attached=false;
  function suppress(){
    var css=document.createElement('style');
    css.textContent='{{css}}';
    document.head.appendChild(css);
    return function(){
      getComputedStyle(document.body||root);
      requestAnimationFrame(function(){ if(css.parentNode){ css.parentNode.removeChild(css); } });
    };
  }
  function signal(){
    return media?(media.matches?'dark':'light'):'unknown';
  }
  function apply(){
    var restore=suppress();
    var mode=root.getAttribute('{{modeAttr}}');
    if(mode!=='dark'&&mode!=='light'){ mode='system'; }
    var resolved=mode==='system'?(signal()==='dark'?'dark':'light'):mode;
    if(resolved==='dark'){ root.classList.add('{{darkClass}}'); } else { root.classList.remove('{{darkClass}}'); }
    restore();
  }
  window.blogdTheme={
    apply:apply,
    signal:signal,
    attach:function(){ attached=true; },
    detach:function(){ attached=false; }
  };
  if(root.getAttribute('{{signalAttr}}')!==signal()){ apply(); }
  if(media){
    var onChange=function(){
      if(!attached){ apply(); }
      document.dispatchEvent(new CustomEvent('blogd:scheme',{detail:signal()}));
    };
    if(media.addEventListener){ media.addEventListener('change',onChange); }
    else if(media.addListener){ media.addListener(onChange); }
  }
})();`

// InlineScript returns the bootstrap routine to embed in the served document.
func InlineScript() string {
	return strings.NewReplacer(
		"{{css}}", NoTransitionCSS,
		"{{modeAttr}}", theme.ModeAttribute,
		"{{darkClass}}", theme.DarkClass,
		"{{signalAttr}}", SignalAttribute,
	).Replace(inlineScript)
}
